package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePhotoCount(t *testing.T) {
	tests := []struct {
		n       int
		wantErr string
	}{
		{n: 0, wantErr: "at least one photo"},
		{n: -1, wantErr: "at least one photo"},
		{n: 1},
		{n: 3},
		{n: 5},
		{n: 6, wantErr: "Maximum 5 photos"},
		{n: 100, wantErr: "Maximum 5 photos"},
	}

	for _, tc := range tests {
		err := ValidatePhotoCount(tc.n)
		if tc.wantErr == "" {
			assert.NoError(t, err, "n=%d", tc.n)
			continue
		}
		require.Error(t, err, "n=%d", tc.n)
		assert.Contains(t, err.Error(), tc.wantErr)
	}
}

func TestValidateDisplayOrder(t *testing.T) {
	for i := 0; i <= 4; i++ {
		assert.NoError(t, ValidateDisplayOrder(i))
	}
	assert.Error(t, ValidateDisplayOrder(-1))
	assert.Error(t, ValidateDisplayOrder(5))
}

func TestValidateMIMEType(t *testing.T) {
	for _, ok := range []string{"image/jpeg", "image/jpg", "image/png", "image/webp", "IMAGE/PNG", " image/jpeg "} {
		assert.NoError(t, ValidateMIMEType(ok), ok)
	}
	for _, bad := range []string{"image/gif", "video/mp4", "application/pdf", ""} {
		assert.Error(t, ValidateMIMEType(bad), bad)
	}
}

func TestValidateFileSize(t *testing.T) {
	assert.NoError(t, ValidateFileSize(0))
	assert.NoError(t, ValidateFileSize(MaxPhotoBytes))
	assert.Error(t, ValidateFileSize(MaxPhotoBytes+1))
}
