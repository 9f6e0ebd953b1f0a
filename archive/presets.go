/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package archive

// TemplateSDS is the legacy SeisComP Data Structure layout:
// YEAR/NET/STA/CHAN.TYPE/NET.STA.LOC.CHAN.TYPE.YEAR.DAY
//
// Deprecated: prefer a template with a defining %H (and, if wanted,
// non-defining #M/#S) if sub-daily files are wanted; SDS is provided only for compatibility
// with existing archive consumers.
const TemplateSDS = "%Y/%n/%s/%c.%t/%n.%s.%l.%c.%t.%Y.%j"

// TemplateBUD is the Buffer of Uniform Data layout:
// NET/STA/STA.NET.LOC.CHAN.YEAR.DAY
//
// Deprecated: see TemplateSDS.
const TemplateBUD = "%n/%s/%s.%n.%l.%c.%Y.%j"
