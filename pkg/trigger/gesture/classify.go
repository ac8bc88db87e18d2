package gesture

import (
	"fmt"

	"github.com/MrWong99/voxtrigger/pkg/vision"
)

// fingerTips are the tip landmarks of the four non-thumb fingers. Each is
// compared against the PIP joint two indexes below it.
var fingerTips = [...]int{vision.IndexTip, vision.MiddleTip, vision.RingTip, vision.PinkyTip}

// Classify returns the number of extended fingers in hand, from 0 to 5.
//
// The thumb lies sideways relative to the palm, so it is tested on the
// horizontal axis: it counts as extended when its tip is left of the IP
// joint in image coordinates. The other fingers are tested vertically: a tip
// above (smaller Y than) its PIP joint counts as extended.
//
// hand must contain exactly [vision.NumLandmarks] points; anything else is a
// programming error and panics.
func Classify(hand vision.HandLandmarkSet) int {
	if len(hand) != vision.NumLandmarks {
		panic(fmt.Sprintf("gesture: landmark set has %d points, want %d", len(hand), vision.NumLandmarks))
	}

	count := 0
	if hand[vision.ThumbTip].X < hand[vision.ThumbIP].X {
		count++
	}
	for _, tip := range fingerTips {
		if hand[tip].Y < hand[tip-2].Y {
			count++
		}
	}
	return count
}
