//go:build !linux

package pipeline

func setAffinity(int) error { return nil }

func setNice(int) error { return nil }
