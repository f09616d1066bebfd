package sliceutil

func Map[T any, U any, F ~func(T) U](items []T, f F) []U {
	res := make([]U, len(items))
	for i, item := range items {
		res[i] = f(item)
	}
	return res
}

// MapErr is like Map, but stops at the first error.
func MapErr[T any, U any, F ~func(T) (U, error)](items []T, f F) ([]U, error) {
	res := make([]U, len(items))
	for i, item := range items {
		v, err := f(item)
		if err != nil {
			return nil, err
		}
		res[i] = v
	}
	return res, nil
}
