package main

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
	"github.com/trezcool/gradebook/core/user"
)

// export writes the current grades of a user in the given format.
func (cli *commandLine) export(uname string, format gradebook.ExportFormat, w io.Writer) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{core.CleanString(uname, true /* lower */)}})
	if err != nil {
		return err
	}

	store, err := gradebook.NewStore(cli.remote, usr.ID)
	if err != nil {
		return errors.Wrap(err, "creating store")
	}
	if err := store.FetchAll(ctx, usr.ID); err != nil {
		return errors.Wrap(err, "loading grades")
	}
	content, err := store.Export(format)
	if err != nil {
		return err
	}
	_, err = w.Write(content)
	return err
}
