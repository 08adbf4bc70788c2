package common

// Object key namespaces. Every key is {namespace}/{ownerID}/{name}.
const (
	UploadsNamespace   = "uploads"
	ProcessedNamespace = "processed"
)

// UnknownOwner is the owner identity assigned when the caller's claims carry
// no usable username or email.
const UnknownOwner = "unknown"

// AdminGroup is the group membership that grants the global listing scope.
const AdminGroup = "admin"
