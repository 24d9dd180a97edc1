package core

import "context"

// IService is implemented by external collaborator services (LLM inference,
// audio transcoding backends). Init establishes any remote connection, Cleanup
// releases resources, and Reset returns the service to a just-initialized
// state without tearing the connection down.
type IService interface {
	Init(ctx context.Context) error
	Cleanup() error
	Reset() error
}
