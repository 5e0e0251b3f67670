package benchmark

import "time"

// StandardWorkloads returns a fixed set of push/pop scenarios covering a
// push-heavy, balanced, pop-heavy, and delayed-push mix.
func StandardWorkloads(topic string) []Config {
	return []Config{
		{
			Name:            "push-heavy",
			WorkloadType:    WorkloadPushHeavy,
			Topic:           topic,
			PayloadSize:     256,
			Duration:        60 * time.Second,
			Concurrency:     8,
			PreloadMessages: 10000,
			Seed:            12345,
		},
		{
			Name:            "balanced",
			WorkloadType:    WorkloadBalanced,
			Topic:           topic,
			PayloadSize:     256,
			Duration:        60 * time.Second,
			Concurrency:     8,
			PreloadMessages: 10000,
			Seed:            12345,
		},
		{
			Name:            "pop-heavy",
			WorkloadType:    WorkloadPopHeavy,
			Topic:           topic,
			PayloadSize:     256,
			Duration:        60 * time.Second,
			Concurrency:     8,
			PreloadMessages: 200000,
			Seed:            12345,
		},
		{
			Name:            "push-only-delayed",
			WorkloadType:    WorkloadPushOnly,
			Topic:           topic,
			PayloadSize:     1000,
			DelayFrac:       0.25,
			Duration:        30 * time.Second,
			Concurrency:     1,
			PreloadMessages: 0,
			Seed:            12345,
		},
	}
}

// QuickWorkloads is StandardWorkloads scaled down for a fast local run.
func QuickWorkloads(topic string) []Config {
	configs := StandardWorkloads(topic)
	for i := range configs {
		configs[i].Duration = 5 * time.Second
		configs[i].PreloadMessages /= 20
	}
	return configs
}
