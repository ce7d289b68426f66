package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/volvooncall/voc/mocks"
	"github.com/volvooncall/voc/pkg/cli"
	"github.com/volvooncall/voc/pkg/owntracks"
	"github.com/volvooncall/voc/pkg/voc"
)

func testEnv(out *bytes.Buffer) *Env {
	return &Env{
		config: cli.NewConfig(),
		out:    out,
		now:    func() time.Time { return time.Unix(1700000000, 0) },
	}
}

func trackedVehicle() *voc.Vehicle {
	doc := statusDocument()
	position := voc.NewDocument()
	position.Set("latitude", voc.Number(57.5))
	position.Set("longitude", voc.Number(11.5))
	doc.Set("position", voc.DocumentValue(position))
	return voc.NewVehicle(nil, "", doc)
}

func TestExecuteMissingCommand(t *testing.T) {
	env := testEnv(&bytes.Buffer{})
	if err := execute(context.Background(), env, nil); err == nil {
		t.Error("expected error for missing command")
	}
}

func TestExecuteUnknownCommand(t *testing.T) {
	env := testEnv(&bytes.Buffer{})
	err := execute(context.Background(), env, []string{"fly"})
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("execute = %v, want ErrUnknownCommand", err)
	}
}

func TestExecuteRequiresSession(t *testing.T) {
	env := testEnv(&bytes.Buffer{})
	if err := execute(context.Background(), env, []string{"status"}); err == nil {
		t.Error("expected error without a session")
	}
}

func TestExecuteArgumentCount(t *testing.T) {
	env := testEnv(&bytes.Buffer{})
	env.conn = new(voc.Connection)
	tests := []struct {
		name string
		args []string
	}{
		{"missing required", []string{"heater"}},
		{"unexpected extra", []string{"list", "everything"}},
		{"too many", []string{"heater", "start", "now"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := execute(context.Background(), env, test.args)
			if !errors.Is(err, ErrCommandLineArgs) {
				t.Errorf("execute = %v, want ErrCommandLineArgs", err)
			}
		})
	}
}

func TestHeaterStateValidation(t *testing.T) {
	env := testEnv(&bytes.Buffer{})
	car := trackedVehicle()
	err := cmdHeater(context.Background(), env, car, map[string]string{"STATE": "sideways"})
	if !errors.Is(err, ErrCommandLineArgs) {
		t.Errorf("cmdHeater = %v, want ErrCommandLineArgs", err)
	}
	err = cmdHeater(context.Background(), env, car, map[string]string{"STATE": "start"})
	if !errors.Is(err, voc.ErrNotSupported) {
		t.Errorf("cmdHeater = %v, want ErrNotSupported", err)
	}
}

func TestStatusCommandWithGeocoding(t *testing.T) {
	ctrl := gomock.NewController(t)
	geocoder := mocks.NewMockGeocoder(ctrl)
	geocoder.EXPECT().ReverseLookup(gomock.Any(), 57.5, 11.5).Return("Hisingen, Göteborg", nil)

	out := &bytes.Buffer{}
	env := testEnv(out)
	env.config.Geocode = true
	env.geocoder = geocoder

	if err := cmdStatus(context.Background(), env, trackedVehicle(), nil); err != nil {
		t.Fatalf("cmdStatus: %s", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("(Hisingen, Göteborg)")) {
		t.Errorf("status output missing address:\n%s", out.String())
	}
}

func TestPrintSingleAttribute(t *testing.T) {
	out := &bytes.Buffer{}
	env := testEnv(out)
	err := cmdPrint(context.Background(), env, trackedVehicle(), map[string]string{"ATTRIBUTE": "car_locked"})
	if err != nil {
		t.Fatalf("cmdPrint: %s", err)
	}
	if out.String() != "true\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestPrintUnknownAttribute(t *testing.T) {
	env := testEnv(&bytes.Buffer{})
	err := cmdPrint(context.Background(), env, trackedVehicle(), map[string]string{"ATTRIBUTE": "warp_drive"})
	if !errors.Is(err, voc.ErrUnknownAttribute) {
		t.Errorf("cmdPrint = %v, want ErrUnknownAttribute", err)
	}
}

func TestOwntracksRequiresPosition(t *testing.T) {
	env := testEnv(&bytes.Buffer{})
	car := voc.NewVehicle(nil, "", statusDocument())
	if err := cmdOwntracks(context.Background(), env, car, nil); err == nil {
		t.Error("expected error without a position")
	}
}

func TestOwntracksPlainReport(t *testing.T) {
	out := &bytes.Buffer{}
	env := testEnv(out)
	if err := cmdOwntracks(context.Background(), env, trackedVehicle(), nil); err != nil {
		t.Fatalf("cmdOwntracks: %s", err)
	}

	var report map[string]interface{}
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("output is not JSON: %s", err)
	}
	if report["_type"] != "location" {
		t.Errorf("_type = %v", report["_type"])
	}
	if report["lat"] != 57.5 || report["lon"] != 11.5 {
		t.Errorf("coordinates = %v, %v", report["lat"], report["lon"])
	}
	if report["tst"] != float64(1700000000) {
		t.Errorf("tst = %v, want stubbed clock", report["tst"])
	}
	if report["registration_number"] != "WHEELS" {
		t.Errorf("registration_number = %v", report["registration_number"])
	}
}

func TestOwntracksEncryptedReport(t *testing.T) {
	out := &bytes.Buffer{}
	env := testEnv(out)
	env.config.OwntracksKey = "hunter2"
	env.newEncrypter = func(passphrase string) owntracks.Encrypter {
		return owntracks.NewEncrypter(passphrase)
	}

	if err := cmdOwntracks(context.Background(), env, trackedVehicle(), nil); err != nil {
		t.Fatalf("cmdOwntracks: %s", err)
	}

	var envelope map[string]string
	if err := json.Unmarshal(out.Bytes(), &envelope); err != nil {
		t.Fatalf("output is not JSON: %s", err)
	}
	if envelope["_type"] != "encrypted" {
		t.Errorf("_type = %q", envelope["_type"])
	}
	plaintext, err := owntracks.Decrypt(envelope["data"], "hunter2")
	if err != nil {
		t.Fatalf("Decrypt: %s", err)
	}
	var report map[string]interface{}
	if err := json.Unmarshal(plaintext, &report); err != nil {
		t.Fatalf("payload is not JSON: %s", err)
	}
	if report["_type"] != "location" || report["lat"] != 57.5 {
		t.Errorf("unexpected payload: %s", plaintext)
	}
}

func TestOwntracksEncryptionUnavailable(t *testing.T) {
	env := testEnv(&bytes.Buffer{})
	env.config.OwntracksKey = "hunter2"
	err := cmdOwntracks(context.Background(), env, trackedVehicle(), nil)
	if !errors.Is(err, owntracks.ErrCryptoUnavailable) {
		t.Errorf("cmdOwntracks = %v, want ErrCryptoUnavailable", err)
	}
}
