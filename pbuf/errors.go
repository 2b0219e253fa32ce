package pbuf

import "fmt"

// AlreadyConnectedError is returned from [*Endpoint.Connect]
// when the queue is connected to another API.
type AlreadyConnectedError struct {
	Connected API
	Requested API
}

func (e AlreadyConnectedError) Error() string {
	return fmt.Sprintf(
		"buffer queue already connected to API %v; cannot connect %v",
		e.Connected, e.Requested,
	)
}

// DisconnectMismatchError is returned from [*Endpoint.Disconnect]
// when a specific API is named but a different one is connected.
type DisconnectMismatchError struct {
	Connected API
	Requested API
}

func (e DisconnectMismatchError) Error() string {
	return fmt.Sprintf(
		"buffer queue connected to API %v; cannot disconnect %v",
		e.Connected, e.Requested,
	)
}

// SlotsExhaustedError is returned from [*Endpoint.QueueFrame]
// when every buffer slot holds an in-flight frame.
type SlotsExhaustedError struct {
	Slots uint
}

func (e SlotsExhaustedError) Error() string {
	return fmt.Sprintf("all %d buffer slots hold in-flight frames", e.Slots)
}
