package app

import (
	"github.com/vk/scengridgo/internal/registry"
	"github.com/vk/scengridgo/modules/archive"
	"github.com/vk/scengridgo/modules/execcmd"
	"github.com/vk/scengridgo/modules/modelrun"
	"github.com/vk/scengridgo/modules/queryrun"
	"github.com/vk/scengridgo/modules/setupxml"
)

// coreModules is the definitive list of all action modules compiled into the
// scengrid binary.
var coreModules = []registry.Module{
	&setupxml.Module{},
	&execcmd.Module{},
	&modelrun.Module{},
	&queryrun.Module{},
	&archive.Module{},
}
