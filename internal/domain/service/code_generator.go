package service

// CodeGenerator produces one-time numeric codes.
type CodeGenerator interface {
	// Generate returns exactly length decimal digits; leading zeros are allowed.
	Generate(length int) (string, error)
}
