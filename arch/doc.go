// Package arch isolates all raw register, stack-memory and interrupt
// controller access behind the Machine interface. The rest of the kernel core
// never touches registers directly; it reads and mutates the values defined
// here and lets a Machine implementation apply them to the CPU.
package arch
