// Package device identifies client devices and tracks which account each
// device is bound to and whether it is blocked.
//
// A device is identified by a fingerprint: a short, deterministic,
// non-cryptographic label derived from observable browser attributes. A
// fingerprint is never a secret and is never used as a credential; it only
// lets the registry recognize a returning device.
//
// # Fingerprints
//
//	env := device.StaticEnvironment(device.ExtractAttributesFromRequest(r))
//	fp := device.Generate(env)
//
// Outside a browser-like environment Generate returns ServerSideFingerprint.
// FingerprintStore caches the generated value in a durable key-value store
// so it is produced at most once per profile.
//
// # Registry
//
// DeviceService binds fingerprints to accounts, renames them and blocks them.
// Registration is idempotent per fingerprint and refused when the fingerprint
// is bound to another account. Blocking applies to the fingerprint regardless
// of owner; blocking an unknown fingerprint records a blocked placeholder so a
// later registration stays refused.
//
// Storage is pluggable:
//
//	repo, err := device.NewDeviceRepository("postgres", device.RepositoryConfig{DB: pool})
//	svc := device.NewDeviceService(repo,
//		device.WithNotifier(notifier, accounts),
//		device.WithMetrics(m),
//	)
package device
