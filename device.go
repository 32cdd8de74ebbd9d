package debloat

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var userIDPattern = regexp.MustCompile(`UserInfo\{(\d+)`)

// DiscoverDevices enumerates reachable devices and fills in model, SDK
// level and user profiles for the online ones. Status is re-evaluated on
// every call; devices that are not online come back with empty meta.
func DiscoverDevices(ctx context.Context, bridge Bridge) ([]Device, error) {
	devices, err := bridge.Enumerate(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "enumerate devices")
	}
	for i := range devices {
		if devices[i].Status != StatusOnline {
			continue
		}
		if err := fillDeviceMeta(ctx, bridge, &devices[i]); err != nil {
			log.Warn().Err(err).Str("serial", devices[i].Serial).Msg("device meta fetch failed")
		}
	}
	return devices, nil
}

// FindDevice resolves a serial to an enumerated device. An empty serial
// selects the single online device, mirroring adb's default-device rule;
// with several online devices it is an error so a command never lands on
// an arbitrary phone.
func FindDevice(ctx context.Context, bridge Bridge, serial string) (Device, error) {
	devices, err := DiscoverDevices(ctx, bridge)
	if err != nil {
		return Device{}, err
	}
	serial = strings.TrimSpace(serial)
	if serial == "" {
		var online []Device
		for _, d := range devices {
			if d.Status == StatusOnline {
				online = append(online, d)
			}
		}
		switch len(online) {
		case 0:
			return Device{}, errors.Wrap(ErrDeviceUnreachable, "no online devices")
		case 1:
			return online[0], nil
		default:
			return Device{}, errors.New("multiple devices online, specify --device")
		}
	}
	for _, d := range devices {
		if d.Serial == serial {
			if d.Status != StatusOnline {
				return Device{}, errors.Wrapf(ErrDeviceUnreachable, "device %s is %s", serial, d.Status)
			}
			return d, nil
		}
	}
	return Device{}, errors.Wrapf(ErrDeviceUnreachable, "device %s not found", serial)
}

func fillDeviceMeta(ctx context.Context, bridge Bridge, dev *Device) error {
	model, err := bridge.Shell(ctx, dev.Serial, "getprop", "ro.product.model")
	if err != nil {
		return errors.Wrap(err, "query model")
	}
	dev.Model = strings.TrimSpace(model)

	sdkRaw, err := bridge.Shell(ctx, dev.Serial, "getprop", "ro.build.version.sdk")
	if err != nil {
		return errors.Wrap(err, "query sdk level")
	}
	if sdk, convErr := strconv.Atoi(strings.TrimSpace(sdkRaw)); convErr == nil {
		dev.AndroidSDK = sdk
	}

	users, err := listUsers(ctx, bridge, dev.Serial)
	if err != nil {
		return errors.Wrap(err, "list users")
	}
	dev.Users = users
	return nil
}

// listUsers parses `pm list users`. The output format is not guaranteed
// stable across Android versions, so only the `UserInfo{<id>` portion is
// relied on. Each user is probed for protection: a user whose package
// listing errors out rejects package commands entirely.
func listUsers(ctx context.Context, bridge Bridge, serial string) ([]User, error) {
	raw, err := bridge.Shell(ctx, serial, "pm", "list", "users")
	if err != nil {
		return nil, err
	}
	var users []User
	for i, match := range userIDPattern.FindAllStringSubmatch(raw, -1) {
		id, convErr := strconv.Atoi(match[1])
		if convErr != nil {
			continue
		}
		users = append(users, User{
			ID:        id,
			Index:     i,
			Protected: isProtectedUser(ctx, bridge, serial, id),
		})
	}
	return users, nil
}

func isProtectedUser(ctx context.Context, bridge Bridge, serial string, userID int) bool {
	_, err := bridge.Shell(ctx, serial, pmListArgs("", userID)...)
	return err != nil
}
