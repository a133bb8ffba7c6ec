package store

import "errors"

var ErrConflict = errors.New("record already exists")
