// Package codecompiler turns member code into something the model can run.
//
// Compile analyzes the code and returns a CompiledInfo with two artifacts. The
// ScopeInitializer binds every free name of the code to a value or function
// found through a Lookup; the Generator then closes over those bindings and
// yields the MemberFunction that evaluates the code. The two steps are split
// so a member can be compiled once when its code changes and re-bound on
// every recalculation.
package codecompiler
