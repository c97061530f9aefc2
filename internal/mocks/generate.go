package mocks

//go:generate mockery --name Directory --srcpkg github.com/aevon-lab/scoreboard/internal/identity --output ./identity --outpkg identitymocks --with-expecter
//go:generate mockery --name Lookup --srcpkg github.com/aevon-lab/scoreboard/internal/content --output ./content --outpkg contentmocks --with-expecter
//go:generate mockery --name Sink --srcpkg github.com/aevon-lab/scoreboard/internal/notify --output ./notify --outpkg notifymocks --with-expecter
//go:generate mockery --name Dispatcher --srcpkg github.com/aevon-lab/scoreboard/internal/ingestion --output ./ingestion --outpkg ingestionmocks --with-expecter
