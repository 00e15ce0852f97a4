package config

import "testing"

func BenchmarkLoadNodeConfig(b *testing.B) {
	dir := b.TempDir()
	path := writeTestConfig(b, dir, testConfigYAML)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		LoadNodeConfig(path)
	}
}

func BenchmarkValidateNodeConfig(b *testing.B) {
	cfg := DefaultNodeConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ValidateNodeConfig(&cfg)
	}
}
