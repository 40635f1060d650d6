package model

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateUUIDWithPrefix generates a UUID with a module-specific prefix
// (bkg_, whr_, dlq_, evt_, dsp_) so ids are self-describing in logs.
func GenerateUUIDWithPrefix(module string) string {
	return fmt.Sprintf("%s_%s", module, uuid.New().String())
}
