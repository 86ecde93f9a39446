package analysis

// SensitivePorts are services whose exposure makes an incoming flow worth
// keeping and upgrades its kill chain stage.
var SensitivePorts = portSet(22, 23, 25, 445, 1433, 1521, 3306, 3389, 5432, 5900, 5985, 5986, 6379, 8080, 8443, 27017)

// BruteForcePorts are authentication-bearing services targeted by credential guessing.
var BruteForcePorts = portSet(21, 22, 23, 25, 110, 143, 443, 993, 995, 3389, 5900, 8443)

func portSet(ports ...int) map[int]struct{} {
	set := make(map[int]struct{}, len(ports))
	for _, p := range ports {
		set[p] = struct{}{}
	}
	return set
}

// IsSensitivePort reports whether port is in SensitivePorts.
func IsSensitivePort(port int) bool {
	_, ok := SensitivePorts[port]
	return ok
}

func isBruteForcePort(port int) bool {
	_, ok := BruteForcePorts[port]
	return ok
}
