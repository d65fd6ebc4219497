// Package action applies changes to a model as transactions.
//
// Every change is an ActionData. The Pipeline runs its handler on a mutable
// successor of the model, re-derives dependencies, recalculates everything
// downstream in dependency order, collects the change events, runs any
// actions member code posted through the messenger, and locks the result.
// The caller decides whether to keep the new model or drop it.
package action
