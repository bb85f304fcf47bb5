package eventmodels

func Float64Ptr(v float64) *float64 {
	return &v
}

func Int64Ptr(v int64) *int64 {
	return &v
}

func copyFloat64(v *float64) *float64 {
	if v == nil {
		return nil
	}

	c := *v
	return &c
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}

	c := *v
	return &c
}
