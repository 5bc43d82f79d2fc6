package vera

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/panel"
)

// number accepts both 21 and "21"; the controllers are not consistent.
type number int

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return err
		}
		v = int(f)
	}
	*n = number(v)
	return nil
}

type userDataDevice struct {
	ID         number `json:"id"`
	Name       string `json:"name"`
	Disabled   number `json:"disabled"`
	Category   number `json:"category_num"`
	DeviceType string `json:"device_type"`
	ParentID   number `json:"id_parent"`
}

func (d userDataDevice) device() panel.Device {
	return panel.Device{
		ID:         int(d.ID),
		Name:       d.Name,
		Disabled:   d.Disabled == 1,
		Category:   int(d.Category),
		DeviceType: d.DeviceType,
		ParentID:   int(d.ParentID),
	}
}

type userData struct {
	Devices []userDataDevice `json:"devices"`
}

var _ json.Unmarshaler = (*number)(nil)
