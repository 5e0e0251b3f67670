package filequeue

import "github.com/intellect4all/filequeue/common"

// Message and Stats are re-exported from common so callers never need to
// import the internal package tree directly.
type (
	Message = common.Message
	Stats   = common.Stats
)
