package entity

import (
	"time"

	"github.com/mbeoliero/tradechat/pkg/constant"
)

// NowUnixMilli returns current unix timestamp in milliseconds
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// GenPairKey generates the unique key of an unordered party pair
// Format: pr_{min(a,b)}:{max(a,b)}
// Uses ":" as separator since party ids never contain it
func GenPairKey(partyA, partyB string) string {
	if partyB < partyA {
		partyA, partyB = partyB, partyA
	}
	return constant.PairKeyPrefix + partyA + ":" + partyB
}
