package retailer

import (
	"fmt"
	"time"

	"github.com/desertthunder/abx/internal/shared"
	"golang.org/x/oauth2"
)

// DeviceInfo identifies the registered device.
type DeviceInfo struct {
	DeviceName         string `json:"device_name"`
	DeviceSerialNumber string `json:"device_serial_number"`
	DeviceType         string `json:"device_type"`
}

// CustomerInfo describes the account the device is registered to.
type CustomerInfo struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	GivenName string `json:"given_name"`
}

// DeviceRegistration is the durable artifact issued by the retailer when a device registers.
type DeviceRegistration struct {
	LocaleCode   string       `json:"locale_code"`
	DeviceInfo   DeviceInfo   `json:"device_info"`
	CustomerInfo CustomerInfo `json:"customer_info"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	Expires      time.Time    `json:"expires"`
}

// Token returns the registration's credentials as an [oauth2.Token].
func (r *DeviceRegistration) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: r.RefreshToken,
		Expiry:       r.Expires,
	}
}

// ExpiresWithin reports whether the access token is missing or expires within d of now.
func (r *DeviceRegistration) ExpiresWithin(now time.Time, d time.Duration) bool {
	if r.AccessToken == "" {
		return true
	}
	if r.Expires.IsZero() {
		return false
	}
	return !now.Add(d).Before(r.Expires)
}

// Summary describes the device and its (masked) access token.
func (r *DeviceRegistration) Summary() string {
	name := r.DeviceInfo.DeviceName
	if name == "" {
		name = "device"
	}
	return fmt.Sprintf("%s (%s, serial %s) with access token %s",
		name, r.DeviceInfo.DeviceType, r.DeviceInfo.DeviceSerialNumber, shared.MaskToken(r.AccessToken))
}
