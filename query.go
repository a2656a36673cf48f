package cann

import (
	"fmt"
	"io"
)

// Query writes the devices and their memory usage in text/human readable
// format
func (c *Context) Query(w io.Writer) error {

	active, err := c.GetDevice()

	if err != nil {
		return fmt.Errorf("Error querying active device: %w", err)
	}

	fmt.Fprintf(w, "Device Count: %d, Active Device: %d\n", c.DeviceCount(), active)

	for id := 0; id < c.DeviceCount(); id++ {
		inf, err := c.Device(id)

		if err != nil {
			return fmt.Errorf("Error querying device %d: %w", id, err)
		}

		fmt.Fprintf(w, "  %s\n", inf.String())
	}

	return nil
}

// String returns the device information in a readable format
func (d DeviceInfo) String() string {

	limit := "unlimited"

	if d.Memory.Limit > 0 {
		limit = fmt.Sprintf("%d", d.Memory.Limit)
	}

	return fmt.Sprintf("id=%d, name=%s, workers=%d, memory in use=%d, cached=%d, peak=%d, limit=%s",
		d.ID, d.Name, d.Workers, d.Memory.InUse, d.Memory.Cached, d.Memory.Peak, limit)
}
