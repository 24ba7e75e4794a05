package service

import "errors"

var (
	ErrPlotHasNoChapters  = errors.New("plot has no available chapters")
	ErrChapterHasNoEvents = errors.New("chapter has no available events")
	ErrInvalidSnapshot    = errors.New("invalid story snapshot data")
)
