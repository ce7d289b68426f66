package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/volvooncall/voc/pkg/geocode"
	"github.com/volvooncall/voc/pkg/voc"
)

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// FormatStatus renders the human-readable status block. The fuel clause is
// omitted for vehicles without a fuel system, and the position line is
// omitted when no position is available. An address is appended to the
// position line only when one was resolved.
func FormatStatus(car *voc.Vehicle, address string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %dkm", car, int(car.Odometer())/1000)
	if fuel, ok := car.FuelLevel(); ok {
		distance, _ := car.DistanceToEmpty()
		fmt.Fprintf(&b, " (fuel %v%% %vkm)", fuel, distance)
	}
	b.WriteByte('\n')
	if lat, lon, ok := car.Position(); ok {
		fmt.Fprintf(&b, "    position: %.14f, %.14f", lat, lon)
		if address != "" && address != geocode.NoAddress {
			fmt.Fprintf(&b, " (%s)", address)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "    locked: %s\n", yesNo(car.IsLocked()))
	fmt.Fprintf(&b, "    heater: %s\n", onOff(car.IsHeaterOn()))
	return b.String()
}

// indentJSON renders v as a 4-space indented JSON document. Attribute
// documents serialize with sorted keys, so output is deterministic.
func indentJSON(v any) (string, error) {
	out, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
