package gpu

// GLSL program sources for the render/convert stage. Layout is fixed per
// the three supported output textures (tile-packed YUV420, packed-word
// YUV422, packed A8Y8U8V8 YUV444); three NV12-style variants are carried as
// documented, unwired alternates (see shaders_unwired.go).

const vertexShaderSrc = `
attribute vec4 position;
void main(void)
{
    gl_Position = vec4(position.xy, 0.0, 1.0);
}
`

// copyShaderSrc is a plain sampler copy with no color-space conversion. It
// is compiled with the pipeline, but no layout selects it.
const copyShaderSrc = `
uniform sampler2D tex;
uniform vec2 tex_size;
void main(void)
{
    gl_FragColor = texture2D(tex, gl_FragCoord.xy / tex_size);
}
`

// yuv420ShaderSrc renders the tile-packed YUV420 layout: the top H rows
// carry Y 1:1; below, even columns carry 2x2-averaged U, odd columns carry
// 2x2-averaged V.
const yuv420ShaderSrc = `
uniform sampler2D tex;
uniform vec2 tex_size;
uniform vec4 ymath;
uniform vec4 umath;
uniform vec4 vmath;
void main(void)
{
    vec4 pix;
    float x;
    float y;
    x = gl_FragCoord.x;
    y = gl_FragCoord.y;
    if (y < tex_size.y)
    {
        pix = texture2D(tex, vec2(x, y) / tex_size);
        pix.a = 1.0;
        pix = vec4(clamp(dot(ymath, pix), 0.0, 1.0), 0.0, 0.0, 1.0);
        gl_FragColor = pix;
    }
    else
    {
        y = floor(y - tex_size.y) * 2.0 + 0.5;
        if (mod(x, 2.0) < 1.0)
        {
            pix = texture2D(tex, vec2(x, y) / tex_size);
            pix += texture2D(tex, vec2(x + 1.0, y) / tex_size);
            pix += texture2D(tex, vec2(x, y + 1.0) / tex_size);
            pix += texture2D(tex, vec2(x + 1.0, y + 1.0) / tex_size);
            pix /= 4.0;
            pix.a = 1.0;
            pix = vec4(clamp(dot(umath, pix), 0.0, 1.0), 0.0, 0.0, 1.0);
            gl_FragColor = pix;
        }
        else
        {
            pix = texture2D(tex, vec2(x, y) / tex_size);
            pix += texture2D(tex, vec2(x - 1.0, y) / tex_size);
            pix += texture2D(tex, vec2(x, y + 1.0) / tex_size);
            pix += texture2D(tex, vec2(x - 1.0, y + 1.0) / tex_size);
            pix /= 4.0;
            pix.a = 1.0;
            pix = vec4(clamp(dot(vmath, pix), 0.0, 1.0), 0.0, 0.0, 1.0);
            gl_FragColor = pix;
        }
    }
}
`

// yuv422ShaderSrc packs [Y0 U Y1 V] per output texel from two adjacent
// source pixels.
const yuv422ShaderSrc = `
uniform sampler2D tex;
uniform vec2 tex_size;
uniform vec4 ymath;
uniform vec4 umath;
uniform vec4 vmath;
void main(void)
{
    vec4 pix;
    vec4 pix1;
    vec4 pixs;
    float x;
    float y;
    x = gl_FragCoord.x;
    x = floor(x) * 2.0 + 0.5;
    y = gl_FragCoord.y;
    pix = texture2D(tex, vec2(x, y) / tex_size);
    pix1 = texture2D(tex, vec2(x + 1.0, y) / tex_size);
    pixs = (pix + pix1) / 2.0;
    pix.a = 1.0;
    pix1.a = 1.0;
    pixs.a = 1.0;
    pix.r = dot(ymath, pix);
    pix.g = dot(umath, pixs);
    pix.b = dot(ymath, pix1);
    pix.a = dot(vmath, pixs);
    gl_FragColor = clamp(pix, 0.0, 1.0);
}
`

// yuv444ShaderSrc packs one texel per source pixel, ordered V,U,Y,A.
const yuv444ShaderSrc = `
uniform sampler2D tex;
uniform vec2 tex_size;
uniform vec4 ymath;
uniform vec4 umath;
uniform vec4 vmath;
void main(void)
{
    vec4 pix;
    pix = texture2D(tex, gl_FragCoord.xy / tex_size);
    pix.a = 1.0;
    pix = vec4(dot(vmath, pix), dot(umath, pix), dot(ymath, pix), 1.0);
    gl_FragColor = clamp(pix, 0.0, 1.0);
}
`
