package repository

import "os"

// Option applies a configuration option to the file backed stores.
type Option func(*fileOptions)

type fileOptions struct {
	dirMode  os.FileMode
	fileMode os.FileMode
}

func defaultFileOptions() fileOptions {
	return fileOptions{dirMode: 0o755, fileMode: 0o644}
}

// WithDirMode sets the permissions for directories the store creates.
func WithDirMode(mode os.FileMode) Option {
	return func(o *fileOptions) {
		if mode != 0 {
			o.dirMode = mode
		}
	}
}

// WithFileMode sets the permissions for files the store writes.
func WithFileMode(mode os.FileMode) Option {
	return func(o *fileOptions) {
		if mode != 0 {
			o.fileMode = mode
		}
	}
}
