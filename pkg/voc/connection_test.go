package voc_test

import (
	"context"
	"errors"
	"net/http"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/volvooncall/voc/pkg/voc"
)

const (
	serviceURL  = "https://vocapi.example.com/customerapi/rest/v3.0/"
	vin         = "YV1AA0000A1000001"
	relationURL = serviceURL + "vehicle-account-relations/1"
	vehicleURL  = serviceURL + "vehicles/" + vin
)

func registerAccount(relations ...string) {
	rels := make([]interface{}, len(relations))
	for i, r := range relations {
		rels[i] = r
	}
	httpmock.RegisterResponder(http.MethodGet, serviceURL+"customeraccounts",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
			"username":                "user@example.com",
			"accountVehicleRelations": rels,
		}))
}

func registerVehicle() {
	httpmock.RegisterResponder(http.MethodGet, relationURL,
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
			"vehicle": vehicleURL,
			"status":  "Verified",
		}))
	httpmock.RegisterResponder(http.MethodGet, vehicleURL+"/attributes",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
			"vin":                       vin,
			"registrationNumber":        "ABC123",
			"vehicleType":               "V70",
			"modelYear":                 2016,
			"lockSupported":             true,
			"unlockSupported":           true,
			"remoteHeaterSupported":     true,
			"preclimatizationSupported": false,
		}))
	httpmock.RegisterResponder(http.MethodGet, vehicleURL+"/status",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
			"odometer":        1234567,
			"fuelAmountLevel": 53,
			"distanceToEmpty": 450,
			"carLocked":       true,
			"heater":          map[string]interface{}{"status": "off"},
		}))
	httpmock.RegisterResponder(http.MethodGet, vehicleURL+"/position",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
			"position": map[string]interface{}{
				"latitude":  59.0,
				"longitude": 18.0,
			},
		}))
}

var _ = Describe("Connection", func() {
	var (
		conn *voc.Connection
		ctx  context.Context
	)

	BeforeEach(func() {
		httpmock.Activate()
		ctx = context.Background()
		var err error
		conn, err = voc.NewConnection("user@example.com", "hunter2", serviceURL, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		httpmock.DeactivateAndReset()
	})

	Describe("Update", func() {
		It("walks the account to each vehicle's state", func() {
			registerAccount(relationURL)
			registerVehicle()

			Expect(conn.Update(ctx, true)).To(Succeed())

			car, err := voc.Select(conn.Vehicles(), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(car.VIN()).To(Equal(vin))
			Expect(car.RegistrationNumber()).To(Equal("ABC123"))
			Expect(car.Odometer()).To(Equal(1234567.0))
			Expect(car.IsLocked()).To(BeTrue())
			Expect(car.IsHeaterOn()).To(BeFalse())

			fuel, ok := car.FuelLevel()
			Expect(ok).To(BeTrue())
			Expect(fuel).To(Equal(53.0))

			lat, lon, ok := car.Position()
			Expect(ok).To(BeTrue())
			Expect(lat).To(Equal(59.0))
			Expect(lon).To(Equal(18.0))
		})

		It("fails when the service rejects the credentials", func() {
			httpmock.RegisterResponder(http.MethodGet, serviceURL+"customeraccounts",
				httpmock.NewStringResponder(http.StatusUnauthorized, "Unauthorized"))

			Expect(conn.Update(ctx, true)).NotTo(Succeed())
		})

		It("sends basic auth and device headers", func() {
			httpmock.RegisterResponder(http.MethodGet, serviceURL+"customeraccounts",
				func(req *http.Request) (*http.Response, error) {
					username, password, ok := req.BasicAuth()
					Expect(ok).To(BeTrue())
					Expect(username).To(Equal("user@example.com"))
					Expect(password).To(Equal("hunter2"))
					Expect(req.Header.Get("X-Device-Id")).To(Equal("Device"))
					Expect(req.Header.Get("X-Originator-Type")).To(Equal("App"))
					return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
						"username":                "user@example.com",
						"accountVehicleRelations": []interface{}{},
					})
				})

			Expect(conn.Update(ctx, true)).To(Succeed())
		})

		It("yields no vehicles for an empty account", func() {
			registerAccount()
			Expect(conn.Update(ctx, true)).To(Succeed())

			_, err := voc.Select(conn.Vehicles(), "")
			Expect(errors.Is(err, voc.ErrVehicleNotFound)).To(BeTrue())
		})
	})

	Describe("remote commands", func() {
		BeforeEach(func() {
			registerAccount(relationURL)
			registerVehicle()
			Expect(conn.Update(ctx, true)).To(Succeed())
		})

		It("confirms delivery through the service URL", func() {
			trackingURL := serviceURL + "services/42"
			httpmock.RegisterResponder(http.MethodPost, vehicleURL+"/lock",
				httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
					"status":  "Queued",
					"service": trackingURL,
				}))
			httpmock.RegisterResponder(http.MethodGet, trackingURL,
				httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
					"status": "MessageDelivered",
				}))

			car, err := voc.Select(conn.Vehicles(), vin)
			Expect(err).NotTo(HaveOccurred())
			Expect(car.Lock(ctx)).To(Succeed())
		})

		It("reports a rejected command", func() {
			httpmock.RegisterResponder(http.MethodPost, vehicleURL+"/unlock",
				httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
					"status": "Failed",
				}))

			car, err := voc.Select(conn.Vehicles(), vin)
			Expect(err).NotTo(HaveOccurred())
			err = car.Unlock(ctx)
			var cmdErr *voc.RemoteCommandError
			Expect(errors.As(err, &cmdErr)).To(BeTrue())
			Expect(cmdErr.Status).To(Equal("Failed"))
		})

		It("reports an undelivered message", func() {
			trackingURL := serviceURL + "services/43"
			httpmock.RegisterResponder(http.MethodPost, vehicleURL+"/heater/start",
				httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
					"status":  "Started",
					"service": trackingURL,
				}))
			httpmock.RegisterResponder(http.MethodGet, trackingURL,
				httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
					"status": "Failed",
				}))

			car, err := voc.Select(conn.Vehicles(), vin)
			Expect(err).NotTo(HaveOccurred())
			err = car.StartHeater(ctx)
			var cmdErr *voc.RemoteCommandError
			Expect(errors.As(err, &cmdErr)).To(BeTrue())
		})

		It("forwards arbitrary method names opaquely", func() {
			trackingURL := serviceURL + "services/44"
			httpmock.RegisterResponder(http.MethodPost, vehicleURL+"/honk_blink/both",
				httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
					"status":  "Queued",
					"service": trackingURL,
				}))
			httpmock.RegisterResponder(http.MethodGet, trackingURL,
				httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
					"status": "Successful",
				}))

			car, err := voc.Select(conn.Vehicles(), vin)
			Expect(err).NotTo(HaveOccurred())
			Expect(car.Call(ctx, "honk_blink/both")).To(Succeed())
		})
	})

	Describe("Trips", func() {
		BeforeEach(func() {
			registerAccount(relationURL)
			registerVehicle()
			Expect(conn.Update(ctx, true)).To(Succeed())
		})

		It("fetches the trip history", func() {
			httpmock.RegisterResponder(http.MethodGet, vehicleURL+"/trips",
				httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
					"trips": []interface{}{
						map[string]interface{}{"tripId": 1, "startOdometer": 1230000},
					},
				}))

			car, err := voc.Select(conn.Vehicles(), vin)
			Expect(err).NotTo(HaveOccurred())
			trips, err := car.Trips(ctx)
			Expect(err).NotTo(HaveOccurred())
			list, ok := trips.Get("trips")
			Expect(ok).To(BeTrue())
			Expect(list.List()).To(HaveLen(1))
			Expect(list.List()[0].Document().Has("trip_id")).To(BeTrue())
		})
	})
})

var _ = Describe("ServiceURL", func() {
	It("prefers an explicit override", func() {
		Expect(voc.ServiceURL("eu", "https://example.com/api/")).To(Equal("https://example.com/api/"))
	})
	It("derives a regional endpoint", func() {
		Expect(voc.ServiceURL("na", "")).To(Equal("https://vocapi-na.wirelesscar.net/customerapi/rest/v3.0/"))
	})
	It("falls back to the default endpoint", func() {
		Expect(voc.ServiceURL("", "")).To(Equal(voc.DefaultServiceURL))
	})
})
