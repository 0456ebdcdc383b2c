package document

import "strings"

// SupportedExtensions lists the file extensions of the formats the rendering
// surface understands. The list is advisory; the host reads any file.
var SupportedExtensions = []string{ //nolint:gochecknoglobals
	"nii", "nii.gz", "dcm", "mha", "mhd", "nhdr", "nrrd", "mgh", "mgz", "v", "v16", "vmr",
}

// IsSupported reports whether name ends in one of SupportedExtensions.
func IsSupported(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range SupportedExtensions {
		if strings.HasSuffix(lower, "."+ext) {
			return true
		}
	}
	return false
}
