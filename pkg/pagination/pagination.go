package pagination

import (
	"fmt"
	"strconv"

	"github.com/slganesh1/lume-telehealth/pkg/constants"
)

// Params carries normalized pagination values parsed from a request.
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// Parse converts raw page/limit query values into bounded pagination
// params. Missing values take the defaults; limit is clamped to
// constants.MaxPageSize rather than rejected.
func Parse(pageStr, limitStr string) (*Params, error) {
	page := 1
	limit := constants.DefaultPageSize

	if pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil {
			return nil, fmt.Errorf("invalid page parameter: %w", err)
		}
		if p >= 1 {
			page = p
		}
	}

	if limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, fmt.Errorf("invalid limit parameter: %w", err)
		}
		switch {
		case l < 1:
			limit = 1
		case l > constants.MaxPageSize:
			limit = constants.MaxPageSize
		default:
			limit = l
		}
	}

	return &Params{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}, nil
}
