// Package terminology answers value set membership questions for the
// terminology filter.
//
// Memory holds R4 ValueSet and CodeSystem resources in memory. Value sets
// defined by an expansion are used as-is; value sets defined by a compose
// are expanded lazily on first use, resolving concept filters against the
// loaded code systems.
//
//	mem := terminology.NewMemory()
//	if _, err := mem.LoadFromDirectory("./terminology"); err != nil {
//		return err
//	}
//	ok, err := mem.IsMember(ctx, code, "http://example.org/ValueSet/diabetes")
//
// Cached adds an LRU in front of any membership service, and Open builds a
// Memory from a file URI or a plain path.
package terminology
