package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"

	domainerrors "otpgate/internal/domain/errors"
	"otpgate/internal/domain/service"
	"otpgate/internal/errors"
)

// otpGenerator draws codes uniformly from crypto/rand.
type otpGenerator struct{}

// NewOTPGenerator is the constructor for the one-time code generator.
func NewOTPGenerator() service.CodeGenerator {
	return &otpGenerator{}
}

// Generate returns a zero-padded decimal code of exactly length digits.
func (g *otpGenerator) Generate(length int) (string, error) {
	if length <= 0 {
		return "", domainerrors.ErrInvalidArgument.WrapMessage("code length must be positive")
	}

	upper := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return "", errors.Wrap(err, "failed to read random code")
	}

	return fmt.Sprintf("%0*d", length, n), nil
}
