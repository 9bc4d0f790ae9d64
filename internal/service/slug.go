package service

import (
	"fmt"
	"math/rand"
)

// Читаемый handle комнаты вида swift-tiger-42.
var (
	slugAdjectives = []string{"swift", "bright", "calm", "bold", "cool", "fast", "kind", "warm", "zen"}
	slugNouns      = []string{"tiger", "eagle", "wolf", "bear", "fox", "lion", "hawk", "shark", "deer", "owl", "kiwi"}
)

func generateSlug() string {
	adj := slugAdjectives[rand.Intn(len(slugAdjectives))]
	noun := slugNouns[rand.Intn(len(slugNouns))]
	return fmt.Sprintf("%s-%s-%d", adj, noun, rand.Intn(1000))
}
