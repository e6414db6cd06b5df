package appraise

import (
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

var (
	ErrAggregateNotFound  = errors.New("aggregate not found", j.C("ERR_8c1f4a2d90be7e31"))
	ErrVersionConflict    = errors.New("stream version conflict - reload and retry", j.C("ERR_5b8e0d7f2a94c163"))
	ErrUnknownFactType    = errors.New("unknown fact type for aggregate", j.C("ERR_d27a91c4f08b3e56"))
	ErrInvalidTransition  = errors.New("transition not allowed", j.C("ERR_43f6b2a8d1e09c75"))
	ErrReopenDenied       = errors.New("reopen not allowed", j.C("ERR_97e3c50a6b2df184"))
	ErrNothingSubmitted   = errors.New("submission state is undefined when nothing has been submitted", j.C("ERR_1a6d84f03c9e72b5"))
	ErrProjectionNotFound = errors.New("projection not registered", j.C("ERR_e0b54c823a17f9d6"))
	ErrNotRebuildable     = errors.New("projection is not rebuildable", j.C("ERR_6f29d1857e4ba0c3"))
	ErrMisconfigured      = errors.New("projection registration is incomplete", j.C("ERR_b84a7f10d63c295e"))
	ErrReplayNotFound     = errors.New("replay not found", j.C("ERR_2d90e6c4a8513fb7"))
	ErrRebuildInProgress  = errors.New("rebuild for projection still in progress - retry once complete", j.C("ERR_ca1582f7b96d403e"))
)

type Error interface {
	error
}
