package repository

import "errors"

// ErrDuplicate возвращается при нарушении уникального индекса
// (например, второе активное бронирование на тот же слот)
var ErrDuplicate = errors.New("duplicate key")
