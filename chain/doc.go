// Package chain holds the declarative model of a chain run: definitions and
// their YAML catalog, the Task contract and its registry, the execution
// context shared by the tasks of one invocation, and the results a run
// produces.
//
// A chain is an ordered list of steps. A step either runs one task in place
// or hands a block of tasks to a scheduler to run concurrently:
//
//	def := chain.NewDefinition("DocumentationUpdate",
//		chain.Single("Module_DocWriter"),
//		chain.Parallel("Module_Lint", "Module_TestGenerator"),
//	)
//
// Parallel tasks never write the shared context directly. Each one runs on a
// view returned by Context.Fork and the views are folded back with
// Context.Commit in the order the block lists them.
package chain
