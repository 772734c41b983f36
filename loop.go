// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"code.hybscloud.com/kont"
)

// Loop runs step repeatedly. step returns Left(nextState) to continue or
// Right(result) to finish. Steps that complete without suspending are
// iterated in place, without growing the fiber's stack.
func Loop[S, A any](initial S, step func(S) Effect[kont.Either[S, A]]) Effect[A] {
	return effectOf[A](&suspend{factory: func() instruction {
		return loopFrom(initial, step)
	}})
}

func loopFrom[S, A any](s S, step func(S) Effect[kont.Either[S, A]]) instruction {
	for {
		i := step(s).instr()
		sn, ok := i.(*succeedNow)
		if !ok {
			return &flatMap{effect: i, k: func(v kont.Erased) instruction {
				return loopNext(v.(kont.Either[S, A]), step)
			}}
		}
		e := sn.value.(kont.Either[S, A])
		left, ok := e.GetLeft()
		if !ok {
			right, _ := e.GetRight()
			return &succeedNow{value: right}
		}
		s = left
	}
}

func loopNext[S, A any](e kont.Either[S, A], step func(S) Effect[kont.Either[S, A]]) instruction {
	if left, ok := e.GetLeft(); ok {
		return loopFrom(left, step)
	}
	right, _ := e.GetRight()
	return &succeedNow{value: right}
}
