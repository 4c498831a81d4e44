package redis

type Config struct {
	Addrs     []string
	Namespace string
	PoolSize  int
	Password  string
}

func (c Config) namespace() string {
	if len(c.Namespace) == 0 {
		return "flowfirst"
	}
	return c.Namespace
}
