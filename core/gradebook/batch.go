package gradebook

import "context"

// DeleteStudents deletes the students one after the other, each with its own cascade.
func DeleteStudents(ctx context.Context, store *Store, ids []string) (BatchResult, error) {
	return runBatch(ctx, ids, store.DeleteStudent)
}

// DeleteTests deletes the tests one after the other, each with its own cascade.
func DeleteTests(ctx context.Context, store *Store, ids []string) (BatchResult, error) {
	return runBatch(ctx, ids, store.DeleteTest)
}

func runBatch(ctx context.Context, ids []string, fn func(context.Context, string) error) (BatchResult, error) {
	res := newBatchResult()
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.add(id, fn(ctx, id))
	}
	return res, nil
}
