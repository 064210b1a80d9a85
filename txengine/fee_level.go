// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txengine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// FeeLevel is a named fee tier.
type FeeLevel uint8

const (
	// FeeLevelNone is used by rails without a variable fee market.
	FeeLevelNone FeeLevel = iota

	// FeeLevelRegular is the oracle's regular fee.
	FeeLevelRegular

	// FeeLevelPriority is the oracle's priority fee.
	FeeLevelPriority

	// FeeLevelCustom is a user-chosen fee rate carried in
	// PendingTx.CustomFeeAmount.
	FeeLevelCustom
)

// CustomFeeUnset is the CustomFeeAmount sentinel for "no custom fee".
const CustomFeeUnset int64 = -1

// String returns the string representation of a fee level.
func (f FeeLevel) String() string {
	switch f {
	case FeeLevelNone:
		return "none"

	case FeeLevelRegular:
		return "regular"

	case FeeLevelPriority:
		return "priority"

	case FeeLevelCustom:
		return "custom"

	default:
		return "unknown fee level"
	}
}

// ParseFeeLevel parses the String form of a fee level.
func ParseFeeLevel(s string) (FeeLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return FeeLevelNone, nil

	case "regular":
		return FeeLevelRegular, nil

	case "priority":
		return FeeLevelPriority, nil

	case "custom":
		return FeeLevelCustom, nil

	default:
		return 0, fmt.Errorf("%w: unknown fee level %q",
			ErrIllegalArgument, s)
	}
}

// FeeLevels builds a fee-level set.
func FeeLevels(levels ...FeeLevel) fn.Set[FeeLevel] {
	return fn.NewSet(levels...)
}

// sortedLevels returns the members of a set in ascending order, for stable
// log and error output.
func sortedLevels(set fn.Set[FeeLevel]) []FeeLevel {
	levels := set.ToSlice()
	sort.Slice(levels, func(i, j int) bool {
		return levels[i] < levels[j]
	})

	return levels
}

// checkFeeLevelChange enforces the fee-level transition rules shared by all
// engines: the level must be legal for the pending tx, and a custom level
// needs a non-negative custom fee.
func checkFeeLevelChange(ptx PendingTx, level FeeLevel,
	customFee int64) error {

	if !ptx.AvailableFeeLevels.Contains(level) {
		return fmt.Errorf("%w: %v not in %v", ErrIllegalFeeLevel, level,
			sortedLevels(ptx.AvailableFeeLevels))
	}

	if level == FeeLevelCustom && customFee < 0 {
		return fmt.Errorf("%w: custom fee level needs a fee amount, "+
			"got %d", ErrIllegalArgument, customFee)
	}

	return nil
}

// withFeeLevel returns a copy of ptx with the new level applied. The custom
// fee amount is only kept for the custom level.
func withFeeLevel(ptx PendingTx, level FeeLevel, customFee int64) PendingTx {
	ptx.FeeLevel = level
	ptx.CustomFeeAmount = CustomFeeUnset

	if level == FeeLevelCustom {
		ptx.CustomFeeAmount = customFee
	}

	return ptx
}
