package kernel

// Error describes an engine error. Errors raised from the scan paths are
// declared as package-level pointers to Error values so that reporting them
// never requires an allocation while memory is being tested.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// String returns the error message prefixed by the module name using the
// same "[module] message" layout used by the kfmt log output.
func (e *Error) String() string {
	return "[" + e.Module + "] " + e.Message
}
