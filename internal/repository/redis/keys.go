package redis

import "fmt"

const ns = "tixsaga:v1"

func KeyTheatres() string {
	return ns + ":theatres"
}

func KeyTheatreShows(theatreID int64) string {
	return fmt.Sprintf("%s:theatre:%d:shows", ns, theatreID)
}

func KeyShow(showID int64) string {
	return fmt.Sprintf("%s:show:%d", ns, showID)
}

func KeyShowLock(showID int64) string {
	return fmt.Sprintf("%s:lock:show:%d", ns, showID)
}

func KeyIdemBooking(idemKey string) string {
	return fmt.Sprintf("%s:idem:bookings:%s", ns, idemKey)
}

func ChannelShowsChanged() string {
	return ns + ":shows:changed"
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}
