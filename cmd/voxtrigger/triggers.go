package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/MrWong99/voxtrigger/internal/config"
	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
	"github.com/MrWong99/voxtrigger/pkg/trigger"
	"github.com/MrWong99/voxtrigger/pkg/trigger/gesture"
	"github.com/MrWong99/voxtrigger/pkg/trigger/keyhold"
	"github.com/MrWong99/voxtrigger/pkg/vision/cv"
)

// openGesture opens the camera and the landmark model and builds the
// gesture detector on them. The returned close func releases both.
func openGesture(cfg *config.Config) (*gesture.Detector, func() error, error) {
	cam, err := cv.OpenCamera(cfg.Gesture.Camera)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", trigger.ErrDeviceUnavailable, err)
	}

	// The landmark network follows the recognition device preference.
	var fp16 bool
	if pref, perr := asr.ParseDevicePreference(cfg.ASR.Device); perr == nil {
		_, prec := asr.ResolveDevice(pref)
		fp16 = prec == asr.PrecisionFP16
	}
	model, err := cv.NewLandmarkModel(cfg.Gesture.LandmarkModel,
		cv.WithMinConfidence(cfg.Gesture.MinConfidence),
		cv.WithAccelerator(fp16),
	)
	if err != nil {
		_ = cam.Close()
		return nil, nil, fmt.Errorf("%w: %w", trigger.ErrDeviceUnavailable, err)
	}
	closeAll := func() error {
		return errors.Join(model.Close(), cam.Close())
	}

	det, err := gesture.New(cam, model,
		gesture.WithTargetFingers(cfg.Gesture.Fingers),
		gesture.WithConfirmFrames(cfg.Gesture.ConfirmFrames),
		gesture.WithFrameInterval(cfg.Gesture.FrameInterval),
		gesture.WithSettleDelay(cfg.Gesture.Settle),
		gesture.WithReadBackoff(cfg.Gesture.ReadBackoff),
	)
	if err != nil {
		_ = closeAll()
		return nil, nil, err
	}
	return det, closeAll, nil
}

// openKeys builds the key-hold detector on the controlling terminal.
func openKeys(cfg *config.Config) (*keyhold.Detector, error) {
	return keyhold.New(keyhold.NewTTY(os.Stdin),
		keyhold.WithKey(cfg.Keys.Key[0]),
		keyhold.WithTimeout(cfg.Keys.Timeout),
	)
}

// openTrigger builds the detector selected by listen.trigger.
func openTrigger(cfg *config.Config) (trigger.Detector, func() error, error) {
	switch cfg.Listen.Trigger {
	case config.TriggerGesture:
		return openGesture(cfg)
	case config.TriggerKeys:
		det, err := openKeys(cfg)
		if err != nil {
			return nil, nil, err
		}
		return det, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown trigger %q", cfg.Listen.Trigger)
	}
}

// keyName renders a trigger key for humans.
func keyName(k byte) string {
	switch k {
	case ' ':
		return "SPACE"
	case '\r', '\n':
		return "ENTER"
	case '\t':
		return "TAB"
	}
	if k < 0x20 {
		return fmt.Sprintf("Ctrl-%c", k+'@')
	}
	return string(rune(k))
}
