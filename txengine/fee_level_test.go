package txengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCheckFeeLevelChange checks that a fee-level change is accepted iff the
// level is legal and a custom level carries a non-negative fee.
func TestCheckFeeLevelChange(t *testing.T) {
	t.Parallel()

	ptx := newPendingTx(btc(0).Asset(), btc(0).Asset())
	ptx.AvailableFeeLevels = FeeLevels(
		FeeLevelRegular, FeeLevelPriority, FeeLevelCustom,
	)
	ptx.FeeLevel = FeeLevelRegular

	tests := []struct {
		name      string
		level     FeeLevel
		customFee int64
		wantErr   error
	}{
		{
			name:      "regular",
			level:     FeeLevelRegular,
			customFee: CustomFeeUnset,
		},
		{
			name:      "priority",
			level:     FeeLevelPriority,
			customFee: CustomFeeUnset,
		},
		{
			name:      "custom zero",
			level:     FeeLevelCustom,
			customFee: 0,
		},
		{
			name:      "custom",
			level:     FeeLevelCustom,
			customFee: 12,
		},
		{
			name:      "custom without fee",
			level:     FeeLevelCustom,
			customFee: CustomFeeUnset,
			wantErr:   ErrIllegalArgument,
		},
		{
			name:      "none is not legal",
			level:     FeeLevelNone,
			customFee: CustomFeeUnset,
			wantErr:   ErrIllegalFeeLevel,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := checkFeeLevelChange(ptx, tc.level, tc.customFee)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)
		})
	}
}

// TestWithFeeLevel checks that the custom fee is only kept for the custom
// level and that the input is left untouched.
func TestWithFeeLevel(t *testing.T) {
	t.Parallel()

	ptx := newPendingTx(btc(0).Asset(), btc(0).Asset())

	custom := withFeeLevel(ptx, FeeLevelCustom, 25)
	require.Equal(t, FeeLevelCustom, custom.FeeLevel)
	require.EqualValues(t, 25, custom.CustomFeeAmount)

	priority := withFeeLevel(custom, FeeLevelPriority, 25)
	require.Equal(t, FeeLevelPriority, priority.FeeLevel)
	require.Equal(t, CustomFeeUnset, priority.CustomFeeAmount)

	require.Equal(t, FeeLevelNone, ptx.FeeLevel)
	require.Equal(t, FeeLevelCustom, custom.FeeLevel)
}

// TestParseFeeLevel checks that every level parses from its string form.
func TestParseFeeLevel(t *testing.T) {
	t.Parallel()

	for _, level := range []FeeLevel{
		FeeLevelNone, FeeLevelRegular, FeeLevelPriority, FeeLevelCustom,
	} {
		parsed, err := ParseFeeLevel(level.String())
		require.NoError(t, err)
		require.Equal(t, level, parsed)
	}

	parsed, err := ParseFeeLevel(" Priority ")
	require.NoError(t, err)
	require.Equal(t, FeeLevelPriority, parsed)

	_, err = ParseFeeLevel("fastest")
	require.ErrorIs(t, err, ErrIllegalArgument)
}

// TestSortedLevels checks the stable ordering used in messages.
func TestSortedLevels(t *testing.T) {
	t.Parallel()

	levels := sortedLevels(FeeLevels(
		FeeLevelCustom, FeeLevelRegular, FeeLevelPriority,
	))
	require.Equal(t, []FeeLevel{
		FeeLevelRegular, FeeLevelPriority, FeeLevelCustom,
	}, levels)
}
