package geo

// 文档注释：geohash 编码（base32）
// 背景：用作围栏定位缓存键；精度 7 约 150m 网格，足以区分相邻教学楼。
// 约束：仅用于缓存键，不参与围栏判定。
const geohashAlphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

func Geohash(c Coordinate, precision int) string {
	if precision <= 0 {
		return ""
	}
	latLo, latHi := -90.0, 90.0
	lonLo, lonHi := -180.0, 180.0
	bit, ch := 0, 0
	even := true
	out := make([]byte, 0, precision)
	for len(out) < precision {
		if even {
			mid := (lonLo + lonHi) / 2
			if c.Lon >= mid {
				ch |= 1 << (4 - bit)
				lonLo = mid
			} else {
				lonHi = mid
			}
		} else {
			mid := (latLo + latHi) / 2
			if c.Lat >= mid {
				ch |= 1 << (4 - bit)
				latLo = mid
			} else {
				latHi = mid
			}
		}
		even = !even
		if bit < 4 {
			bit++
		} else {
			out = append(out, geohashAlphabet[ch])
			bit, ch = 0, 0
		}
	}
	return string(out)
}
