package core

import "errors"

var (
	ErrNoRoom                = errors.New("room not found")
	ErrTransportNotFound     = errors.New("transport not found")
	ErrSendTransportNotFound = errors.New("send transport not found")
	ErrConsumerNotFound      = errors.New("consumer not found")
	ErrCannotConsume         = errors.New("cannot consume producer with given capabilities")
	ErrBroadcastActive       = errors.New("broadcast already active")
	ErrNoBroadcastSource     = errors.New("no producers to broadcast")
	ErrUnauthorized          = errors.New("invalid token")
)
