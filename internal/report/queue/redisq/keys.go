package redisq

// Redis key layout, all under "printq:{queue}:".
//
//	ready        list of message ids waiting for a consumer (LPUSH in, RPOP out)
//	leases       zset of leased ids scored by lease expiry (unix ms)
//	dead         list of dead-lettered ids
//	msg:{id}     hash {body, delivery_count, enqueued_at, lease, dead_*}

const keyPrefix = "printq:"

type keys struct {
	ready  string
	leases string
	dead   string
	msg    string // prefix; append the id
}

func newKeys(queue string) keys {
	base := keyPrefix + queue + ":"
	return keys{
		ready:  base + "ready",
		leases: base + "leases",
		dead:   base + "dead",
		msg:    base + "msg:",
	}
}

func (k keys) message(id string) string { return k.msg + id }
