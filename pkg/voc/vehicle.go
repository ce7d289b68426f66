package voc

import (
	"context"
	"fmt"
)

// Statuses the service reports while a remote call is in flight or done.
const (
	statusQueued           = "Queued"
	statusStarted          = "Started"
	statusSuccessful       = "Successful"
	statusMessageDelivered = "MessageDelivered"
)

// Vehicle is a read-only handle on one vehicle's most recent state snapshot.
// State changes only through remote commands, which the service applies on
// its own schedule; call Connection.Update to observe them.
type Vehicle struct {
	conn *Connection
	url  string
	data *Document
}

func NewVehicle(conn *Connection, url string, data *Document) *Vehicle {
	return &Vehicle{conn: conn, url: url, data: data}
}

// Attributes returns the vehicle's full state snapshot.
func (v *Vehicle) Attributes() *Document {
	return v.data
}

// Attribute returns the named attribute, or ErrUnknownAttribute when the key
// is not present in the snapshot.
func (v *Vehicle) Attribute(name string) (Value, error) {
	val, ok := v.data.Get(name)
	if !ok {
		return Value{}, fmt.Errorf("%w: %s", ErrUnknownAttribute, name)
	}
	return val, nil
}

func (v *Vehicle) text(key string) string {
	val, _ := v.data.Get(key)
	return val.Text()
}

func (v *Vehicle) number(key string) (float64, bool) {
	val, ok := v.data.Get(key)
	if !ok || val.Kind() != KindNumber {
		return 0, false
	}
	return val.Number(), true
}

func (v *Vehicle) boolean(key string) bool {
	val, _ := v.data.Get(key)
	return val.Bool()
}

func (v *Vehicle) VIN() string                { return v.text("vin") }
func (v *Vehicle) RegistrationNumber() string { return v.text("registration_number") }
func (v *Vehicle) VehicleType() string        { return v.text("vehicle_type") }

func (v *Vehicle) ModelYear() int {
	year, _ := v.number("model_year")
	return int(year)
}

// Odometer returns the odometer reading in meters.
func (v *Vehicle) Odometer() float64 {
	meters, _ := v.number("odometer")
	return meters
}

// FuelLevel returns the fuel level percentage. Vehicles without a fuel
// system report no level.
func (v *Vehicle) FuelLevel() (float64, bool) {
	return v.number("fuel_amount_level")
}

// DistanceToEmpty returns the remaining range in kilometers, if reported.
func (v *Vehicle) DistanceToEmpty() (float64, bool) {
	return v.number("distance_to_empty")
}

// Position returns the vehicle's last known coordinates. Not all vehicles
// report a position.
func (v *Vehicle) Position() (lat, lon float64, ok bool) {
	posVal, found := v.data.Get("position")
	if !found || posVal.Kind() != KindDocument {
		return 0, 0, false
	}
	pos := posVal.Document()
	latVal, latOK := pos.Get("latitude")
	lonVal, lonOK := pos.Get("longitude")
	if !latOK || !lonOK || latVal.Kind() != KindNumber || lonVal.Kind() != KindNumber {
		return 0, 0, false
	}
	return latVal.Number(), lonVal.Number(), true
}

func (v *Vehicle) IsLocked() bool {
	return v.boolean("car_locked")
}

func (v *Vehicle) IsHeaterOn() bool {
	if !v.HeaterSupported() {
		return false
	}
	heater, _ := v.data.Get("heater")
	status, ok := heater.Document().Get("status")
	return ok && status.Text() != "off"
}

func (v *Vehicle) PositionSupported() bool {
	return v.data.Has("position")
}

func (v *Vehicle) HeaterSupported() bool {
	if !v.boolean("remote_heater_supported") && !v.boolean("preclimatization_supported") {
		return false
	}
	heater, ok := v.data.Get("heater")
	return ok && heater.Kind() == KindDocument
}

func (v *Vehicle) LockSupported() bool   { return v.boolean("lock_supported") }
func (v *Vehicle) UnlockSupported() bool { return v.boolean("unlock_supported") }

// String renders a one-line human identifier for the vehicle.
func (v *Vehicle) String() string {
	return fmt.Sprintf("%s (%s/%d) %s",
		v.RegistrationNumber(), v.VehicleType(), v.ModelYear(), v.VIN())
}

// Trips fetches the vehicle's trip history.
func (v *Vehicle) Trips(ctx context.Context) (*Document, error) {
	return v.conn.get(ctx, "trips", v.url)
}

func (v *Vehicle) Lock(ctx context.Context) error {
	if !v.LockSupported() {
		return fmt.Errorf("lock %w", ErrNotSupported)
	}
	return v.Call(ctx, "lock")
}

func (v *Vehicle) Unlock(ctx context.Context) error {
	if !v.UnlockSupported() {
		return fmt.Errorf("unlock %w", ErrNotSupported)
	}
	return v.Call(ctx, "unlock")
}

func (v *Vehicle) StartHeater(ctx context.Context) error {
	return v.heaterCall(ctx, "start")
}

func (v *Vehicle) StopHeater(ctx context.Context) error {
	return v.heaterCall(ctx, "stop")
}

// Older vehicles expose a dedicated heater; newer ones only support
// preclimatization. The two use different endpoints.
func (v *Vehicle) heaterCall(ctx context.Context, action string) error {
	switch {
	case v.boolean("remote_heater_supported"):
		return v.Call(ctx, "heater/"+action)
	case v.boolean("preclimatization_supported"):
		return v.Call(ctx, "preclimatization/"+action)
	}
	return fmt.Errorf("heater %w", ErrNotSupported)
}

// Call invokes a named remote method on the vehicle. The method name is
// forwarded opaquely. The service first queues the request and exposes a
// delivery-tracking URL, which is polled once to confirm the message reached
// the vehicle.
func (v *Vehicle) Call(ctx context.Context, method string) error {
	res, err := v.conn.post(ctx, method, v.url, struct{}{})
	if err != nil {
		return err
	}
	status, ok := res.Get("status")
	if !ok {
		return &RemoteCommandError{Method: method}
	}
	switch status.Text() {
	case statusQueued, statusStarted:
	default:
		return &RemoteCommandError{Method: method, Status: status.Text()}
	}
	service, ok := res.Get("service")
	if !ok {
		return &RemoteCommandError{Method: method, Status: status.Text()}
	}
	res, err = v.conn.get(ctx, service.Text(), "")
	if err != nil {
		return err
	}
	status, ok = res.Get("status")
	if !ok {
		return &RemoteCommandError{Method: method}
	}
	switch status.Text() {
	case statusMessageDelivered, statusSuccessful, statusStarted:
		v.conn.logger.Debug("Message delivered")
		return nil
	}
	return &RemoteCommandError{Method: method, Status: status.Text()}
}
